// Package identity authenticates callers of the social ledger.
//
// It provides:
//   - ParseAddress   : validates and checksums a hex account address
//   - LoginMessage   : the personal message a wallet signs to sign in
//   - VerifyLogin    : recovers the secp256k1 signer of a login message
//   - KeyManager     : creates/loads the RSA key that signs session tokens
//   - SessionIssuer  : issues and verifies RS256 JWT session tokens
//   - RequireSession : Gin middleware enforcing a Bearer session token
package identity
