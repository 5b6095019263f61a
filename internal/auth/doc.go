// Package auth implements HMAC request signing and the websocket login
// session.
//
// The venue issues an API key pair: a public key sent in the clear and a
// base64-encoded private key whose decoded bytes are the HMAC-SHA256
// secret. Websocket login signs the public key concatenated with a
// monotonically increasing nonce; REST requests sign the public key
// concatenated with a millisecond timestamp.
package auth
