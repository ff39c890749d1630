// Package auth issues and validates the JWT tokens guarding the conmux API.
//
// Tokens are HS256-signed and validated by signature only; there is no
// session store. The role claim decides whether a caller may inject
// input into consoles or only observe them.
//
// # Usage
//
//	token, err := auth.GenerateAccessToken("ci-runner", auth.RoleOperator, secret, 15)
//
//	claims, err := auth.ParseToken(token, secret)
//	if err != nil {
//	    // reject request
//	}
//	if !claims.Role.CanWrite() {
//	    // read-only caller
//	}
package auth
