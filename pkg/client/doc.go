// Package client is the Go SDK for the starnotary HTTP API.
//
// Registering a star takes three calls. The wallet first asks for a
// challenge, signs it with its private key, and then submits the star while
// the validation window is still open:
//
//	c := client.MustNew("http://localhost:8000")
//
//	req, err := c.RequestValidation(ctx, address)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	sig := signature.SignMessage(key, req.Message, true)
//	if _, err := c.ValidateSignature(ctx, address, sig); err != nil {
//	    log.Fatal(err)
//	}
//
//	blk, err := c.SubmitStar(ctx, address, client.Star{
//	    RA:    "16h 29m 1.0s",
//	    Dec:   "-26° 29' 24.9",
//	    Story: "Found star using https://www.google.com/sky/",
//	})
//
// A validated request backs exactly one SubmitStar. When the server requires
// registration tokens, the token returned by ValidateSignature is attached to
// the following SubmitStar automatically.
//
// Errors returned for non-2xx responses are *APIError values; use IsStatus
// to branch on a specific status such as http.StatusNotFound.
package client
