// Package client is the Go SDK for a socialnode.
//
// # Signing in
//
// A caller is identified by a secp256k1 account. Login signs the node's
// challenge with the account key and keeps the returned session token for
// later calls:
//
//	key, _ := client.LoadKey(os.ExpandEnv("$HOME/.social/key.hex"))
//	c, _ := client.New("http://localhost:8080")
//	if err := c.Login(ctx, key); err != nil {
//	    log.Fatal(err)
//	}
//
// A token obtained earlier can be reused instead:
//
//	c, _ := client.New(nodeURL, client.WithSessionToken(token))
//
// # Posting
//
//	if _, err := c.Register(ctx, "alice"); err != nil && !errors.Is(err, client.ErrAlreadyRegistered) {
//	    log.Fatal(err)
//	}
//	receipt, _ := c.CreatePost(ctx, "hello")
//	c.LikePost(ctx, receipt.PostID)
//	c.AddComment(ctx, receipt.PostID, "first!")
//
// # Reading
//
// Reads need no session:
//
//	post, err := c.GetPost(ctx, 0)
//	if errors.Is(err, client.ErrNotFound) {
//	    // no such post
//	}
//
// # Live events
//
// Watch streams ledger notifications over a websocket until ctx ends:
//
//	events, _ := c.Watch(ctx, "post.created", "comment.added")
//	for ev := range events {
//	    fmt.Println(ev.Kind, ev.PostID)
//	}
package client
