/*
Package authsdk is the client side of the gatekeep authority.

# Client

Client talks to the authority over HTTP:

	client := authsdk.NewClient("http://authority:8080")

	pair, err := client.Login(ctx, "alice", "s3cret-pass")
	if err != nil {
		var apiErr *authsdk.APIError
		if errors.As(err, &apiErr) && apiErr.Code == httpx.CodeInvalidPassword {
			// wrong password
		}
		return err
	}

	// Rotate the refresh token before the access token runs out.
	pair, err = client.Refresh(ctx, pair.RefreshToken)

	// Revoke it when the user signs out.
	err = client.Logout(ctx, pair.RefreshToken)

# Decoding tokens in a resource service

A service behind the gateway decodes bearer tokens with a Decoder. The
Decoder first asks the authority whether the token is still valid
(introspection) and then verifies the signature locally with the shared
secret, so a token revoked at the authority is rejected even though its
signature is still good:

	codec, _ := jwtx.NewCodec(jwtx.CodecConfig{Secret: secret, Issuer: "gatekeep-authority", RefreshableDuration: 24 * time.Hour})
	decoder := authsdk.NewDecoder(client, codec)

	mux.Handle("GET /courses", httpx.Authenticate(decoder, listCourses))

Any failure, including an unreachable authority, is ErrTokenRejected.

# Thread Safety

Client and Decoder hold no mutable state and are safe for concurrent use.
*/
package authsdk
