package main

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/jmerrifield20/socialmedia/pkg/client"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// version is overridden by goreleaser via -ldflags "-X main.version=...".
var version = "dev"

var (
	nodeURL      string
	cfgFile      string
	keyPath      string
	outputFormat string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func socialDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".social")
}

var rootCmd = &cobra.Command{
	Use:   "social",
	Short: "SocialMedia node CLI",
	Long: `social is the command-line interface for a socialnode.

It signs in with a local account key, registers a username, publishes
posts, likes and comments, and reads back the ledger.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
		} else {
			viper.AddConfigPath(socialDir())
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
		viper.SetEnvPrefix("SOCIAL")
		viper.AutomaticEnv()
		_ = viper.ReadInConfig()

		if nodeURL == "" {
			nodeURL = viper.GetString("node_url")
		}
		if nodeURL == "" {
			nodeURL = "http://localhost:8080"
		}
		if keyPath == "" {
			keyPath = viper.GetString("key_file")
		}
		if keyPath == "" {
			keyPath = filepath.Join(socialDir(), "key.hex")
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.social/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&nodeURL, "node", "", "socialnode URL (default http://localhost:8080)")
	rootCmd.PersistentFlags().StringVar(&keyPath, "key", "", "account key file (default ~/.social/key.hex)")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", "text", "Output format: text or json")

	rootCmd.AddCommand(keygenCmd, addressCmd, loginCmd)
	rootCmd.AddCommand(registerCmd, postCmd, likeCmd, commentCmd)
	rootCmd.AddCommand(showCmd, postsCmd, countCmd, userCmd)
	rootCmd.AddCommand(ledgerCmd, watchCmd, versionCmd)
}

// ── keys & sessions ─────────────────────────────────────────────────────────

var keygenForce bool

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Create a new account key",
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := os.Stat(keyPath); err == nil && !keygenForce {
			return fmt.Errorf("%s already exists (use --force to replace it)", keyPath)
		}
		key, err := client.GenerateKey()
		if err != nil {
			return err
		}
		if err := client.SaveKey(keyPath, key); err != nil {
			return err
		}
		_ = os.Remove(sessionPath())
		fmt.Printf("✓ Key written to %s\n", keyPath)
		fmt.Printf("  Address: %s\n", client.Address(key))
		return nil
	},
}

func init() {
	keygenCmd.Flags().BoolVar(&keygenForce, "force", false, "Replace an existing key")
}

var addressCmd = &cobra.Command{
	Use:   "address",
	Short: "Print the address of the account key",
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := client.LoadKey(keyPath)
		if err != nil {
			return err
		}
		fmt.Println(client.Address(key))
		return nil
	},
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in to the node and cache the session token",
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := client.LoadKey(keyPath)
		if err != nil {
			return err
		}
		c, err := client.New(nodeURL)
		if err != nil {
			return err
		}
		if err := login(cmd.Context(), c, key); err != nil {
			return err
		}
		_, exp := c.Token()
		fmt.Printf("✓ Signed in as %s (session expires %s)\n", client.Address(key), exp.Format(time.RFC3339))
		return nil
	},
}

type savedSession struct {
	Node      string    `json:"node"`
	Address   string    `json:"address"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func sessionPath() string { return filepath.Join(socialDir(), "session.json") }

func login(ctx context.Context, c *client.Client, key *ecdsa.PrivateKey) error {
	if err := c.Login(ctx, key); err != nil {
		return err
	}
	tok, exp := c.Token()
	data, _ := json.MarshalIndent(savedSession{
		Node: nodeURL, Address: client.Address(key), Token: tok, ExpiresAt: exp,
	}, "", "  ")
	if err := os.MkdirAll(socialDir(), 0o700); err != nil {
		return err
	}
	return os.WriteFile(sessionPath(), data, 0o600)
}

// authedClient returns a client carrying a session for the account key,
// reusing the cached token while it is valid for this node and key.
func authedClient(ctx context.Context) (*client.Client, error) {
	key, err := client.LoadKey(keyPath)
	if err != nil {
		return nil, fmt.Errorf("%w (run `social keygen` first)", err)
	}

	if data, err := os.ReadFile(sessionPath()); err == nil {
		var s savedSession
		if json.Unmarshal(data, &s) == nil &&
			s.Node == nodeURL && s.Address == client.Address(key) &&
			time.Until(s.ExpiresAt) > time.Minute {
			return client.New(nodeURL, client.WithSessionToken(s.Token))
		}
	}

	c, err := client.New(nodeURL)
	if err != nil {
		return nil, err
	}
	if err := login(ctx, c, key); err != nil {
		return nil, err
	}
	return c, nil
}

func explain(err error) error {
	switch {
	case errors.Is(err, client.ErrUnauthorized):
		return fmt.Errorf("%w (register a username first: social register <name>)", err)
	case errors.Is(err, client.ErrUnauthenticated):
		return fmt.Errorf("%w (run `social login`)", err)
	}
	return err
}

// ── mutations ───────────────────────────────────────────────────────────────

var registerCmd = &cobra.Command{
	Use:   "register <username>",
	Short: "Register the account under a username",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := authedClient(cmd.Context())
		if err != nil {
			return err
		}
		r, err := c.Register(cmd.Context(), args[0])
		if err != nil {
			return explain(err)
		}
		return printReceipt(r, fmt.Sprintf("✓ Registered as %q", args[0]))
	},
}

var postCmd = &cobra.Command{
	Use:   "post <content>",
	Short: "Publish a post",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := authedClient(cmd.Context())
		if err != nil {
			return err
		}
		r, err := c.CreatePost(cmd.Context(), strings.Join(args, " "))
		if err != nil {
			return explain(err)
		}
		return printReceipt(r, fmt.Sprintf("✓ Post %d created", r.PostID))
	},
}

var likeCmd = &cobra.Command{
	Use:   "like <post-id>",
	Short: "Like a post",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID("post-id", args[0])
		if err != nil {
			return err
		}
		c, err := authedClient(cmd.Context())
		if err != nil {
			return err
		}
		r, err := c.LikePost(cmd.Context(), id)
		if err != nil {
			return explain(err)
		}
		return printReceipt(r, fmt.Sprintf("✓ Liked post %d", id))
	},
}

var commentCmd = &cobra.Command{
	Use:   "comment <post-id> <content>",
	Short: "Comment on a post",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID("post-id", args[0])
		if err != nil {
			return err
		}
		c, err := authedClient(cmd.Context())
		if err != nil {
			return err
		}
		r, err := c.AddComment(cmd.Context(), id, strings.Join(args[1:], " "))
		if err != nil {
			return explain(err)
		}
		return printReceipt(r, fmt.Sprintf("✓ Comment %d added to post %d", r.CommentID, id))
	},
}

// ── reads ───────────────────────────────────────────────────────────────────

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show a post or a comment",
}

var showPostCmd = &cobra.Command{
	Use:   "post <post-id>",
	Short: "Show a post",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID("post-id", args[0])
		if err != nil {
			return err
		}
		c, err := client.New(nodeURL)
		if err != nil {
			return err
		}
		p, err := c.GetPost(cmd.Context(), id)
		if err != nil {
			return err
		}
		if outputFormat == "json" {
			return printJSON(p)
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "Post:\t%d\n", p.ID)
		fmt.Fprintf(w, "Author:\t%s\n", p.Author)
		fmt.Fprintf(w, "Created:\t%s\n", p.CreatedAt.Format(time.RFC3339))
		fmt.Fprintf(w, "Likes:\t%d\n", p.LikeCount)
		fmt.Fprintf(w, "Comments:\t%d\n", p.CommentCount)
		fmt.Fprintf(w, "Content:\t%s\n", p.Content)
		return w.Flush()
	},
}

var showCommentCmd = &cobra.Command{
	Use:   "comment <post-id> <comment-id>",
	Short: "Show a comment",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		postID, err := parseID("post-id", args[0])
		if err != nil {
			return err
		}
		commentID, err := parseID("comment-id", args[1])
		if err != nil {
			return err
		}
		c, err := client.New(nodeURL)
		if err != nil {
			return err
		}
		cm, err := c.GetComment(cmd.Context(), postID, commentID)
		if err != nil {
			return err
		}
		if outputFormat == "json" {
			return printJSON(cm)
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "Comment:\t%d on post %d\n", cm.ID, cm.PostID)
		fmt.Fprintf(w, "Commenter:\t%s\n", cm.Commenter)
		fmt.Fprintf(w, "Created:\t%s\n", cm.CreatedAt.Format(time.RFC3339))
		fmt.Fprintf(w, "Content:\t%s\n", cm.Content)
		return w.Flush()
	},
}

func init() {
	showCmd.AddCommand(showPostCmd, showCommentCmd)
}

var (
	listOffset uint64
	listLimit  uint64
)

var postsCmd = &cobra.Command{
	Use:   "posts [post-id]",
	Short: "List posts, or the comments of one post",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := client.New(nodeURL)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)

		if len(args) == 1 {
			id, err := parseID("post-id", args[0])
			if err != nil {
				return err
			}
			comments, total, err := c.ListComments(cmd.Context(), id, listOffset, listLimit)
			if err != nil {
				return err
			}
			if outputFormat == "json" {
				return printJSON(map[string]any{"comments": comments, "total": total})
			}
			fmt.Fprintln(w, "ID\tCOMMENTER\tCREATED\tCONTENT")
			for _, cm := range comments {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", cm.ID, cm.Commenter, cm.CreatedAt.Format(time.RFC3339), truncate(cm.Content, 60))
			}
			fmt.Fprintf(w, "\n%d of %d comments\n", len(comments), total)
			return w.Flush()
		}

		posts, total, err := c.ListPosts(cmd.Context(), listOffset, listLimit)
		if err != nil {
			return err
		}
		if outputFormat == "json" {
			return printJSON(map[string]any{"posts": posts, "total": total})
		}
		fmt.Fprintln(w, "ID\tAUTHOR\tLIKES\tCOMMENTS\tCONTENT")
		for _, p := range posts {
			fmt.Fprintf(w, "%d\t%s\t%d\t%d\t%s\n", p.ID, p.Author, p.LikeCount, p.CommentCount, truncate(p.Content, 60))
		}
		fmt.Fprintf(w, "\n%d of %d posts\n", len(posts), total)
		return w.Flush()
	},
}

func init() {
	postsCmd.Flags().Uint64Var(&listOffset, "offset", 0, "Skip this many entries")
	postsCmd.Flags().Uint64Var(&listLimit, "limit", 20, "Maximum entries to show")
}

var countCmd = &cobra.Command{
	Use:   "count",
	Short: "Print the number of posts",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := client.New(nodeURL)
		if err != nil {
			return err
		}
		n, err := c.PostCount(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Println(n)
		return nil
	},
}

var userCmd = &cobra.Command{
	Use:   "user [address]",
	Short: "Show the account at address (default: your own)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var addr string
		if len(args) == 1 {
			addr = args[0]
		} else {
			key, err := client.LoadKey(keyPath)
			if err != nil {
				return err
			}
			addr = client.Address(key)
		}
		c, err := client.New(nodeURL)
		if err != nil {
			return err
		}
		u, err := c.GetUser(cmd.Context(), addr)
		if errors.Is(err, client.ErrNotFound) {
			return fmt.Errorf("%s is not registered", addr)
		}
		if err != nil {
			return err
		}
		if outputFormat == "json" {
			return printJSON(u)
		}
		fmt.Printf("%s\t%s\n", u.Username, u.Owner)
		return nil
	},
}

// ── ledger ──────────────────────────────────────────────────────────────────

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Show the journal length and root hash",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := client.New(nodeURL)
		if err != nil {
			return err
		}
		o, err := c.Ledger(cmd.Context())
		if err != nil {
			return err
		}
		stats, err := c.Stats(cmd.Context())
		if err != nil {
			return err
		}
		if outputFormat == "json" {
			return printJSON(map[string]any{"ledger": o, "stats": stats})
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "Owner:\t%s\n", stats.Owner)
		fmt.Fprintf(w, "Users:\t%d\n", stats.UserCount)
		fmt.Fprintf(w, "Posts:\t%d\n", stats.PostCount)
		fmt.Fprintf(w, "Entries:\t%d\n", o.Entries)
		fmt.Fprintf(w, "Root:\t%s\n", o.Root)
		return w.Flush()
	},
}

var ledgerVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Ask the node to verify the whole journal hash chain",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := client.New(nodeURL)
		if err != nil {
			return err
		}
		v, err := c.VerifyLedger(cmd.Context())
		if err != nil {
			return err
		}
		if !v.Valid {
			return fmt.Errorf("journal verification failed: %s", v.Error)
		}
		fmt.Println("✓ Journal hash chain verified")
		return nil
	},
}

func init() {
	ledgerCmd.AddCommand(ledgerVerifyCmd)
}

var watchCmd = &cobra.Command{
	Use:   "watch [kind...]",
	Short: "Stream ledger events (user.registered, post.created, post.liked, comment.added)",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := client.New(nodeURL)
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		events, err := c.Watch(ctx, args...)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		for ev := range events {
			if outputFormat == "json" {
				_ = enc.Encode(ev)
				continue
			}
			fmt.Printf("%s  %-16s %s post=%d comment=%d %s\n",
				ev.Timestamp.Format(time.RFC3339), ev.Kind, ev.Caller, ev.PostID, ev.CommentID,
				truncate(ev.Content+ev.Username, 40))
		}
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the CLI version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("social", version)
	},
}

// ── output helpers ──────────────────────────────────────────────────────────

func printReceipt(r *client.Receipt, summary string) error {
	if outputFormat == "json" {
		return printJSON(r)
	}
	fmt.Println(summary)
	fmt.Printf("  Tx:   #%d %s\n", r.TxIndex, r.TxHash)
	fmt.Printf("  Time: %s\n", r.Timestamp.Format(time.RFC3339Nano))
	return nil
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func parseID(name, s string) (uint64, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a non-negative integer, got %q", name, s)
	}
	return id, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
