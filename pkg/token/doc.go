// Package token signs small JSON payloads for embedding in URLs.
//
// Format: base64url(payload).base64url(signature), where the signature is
// HMAC-SHA256 over the payload truncated to 16 bytes. Payloads are visible to
// anyone holding the token; sign references, never secrets.
//
//	type returnClaims struct {
//		RequestID string `json:"rid"`
//		Status    string `json:"st"`
//	}
//
//	tok, err := token.Generate(returnClaims{RequestID: id, Status: "success"}, secret)
//	claims, err := token.Parse[returnClaims](tok, secret)
package token
