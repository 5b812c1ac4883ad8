// Package shopsdk is the Go client for the Atelier storefront backend.
//
// Basic usage:
//
//	client := shopsdk.NewClient("https://shop.example.com",
//	    shopsdk.WithStorage(store),
//	    shopsdk.WithSessionExpiredHandler(func(route string) {
//	        fmt.Println("session expired, sign in again at", route)
//	    }),
//	)
//
//	// Public storefront calls need no credentials.
//	cats, err := client.Categories.ListActive(ctx)
//
//	// Sign in; the token is persisted in the client's storage.
//	if _, err := client.Auth.Login(ctx, email, password); err != nil {
//	    var mfa *shopsdk.MFARequiredError
//	    if errors.As(err, &mfa) {
//	        _, err = client.Auth.VerifyMFA(ctx, mfa.TempToken, code)
//	    }
//	}
//
//	// Admin calls carry the bearer token. An expired token is refreshed
//	// once, transparently, and the call retried.
//	page, err := client.Products.List(ctx, shopsdk.ProductFilter{Status: shopsdk.ProductPublished})
//
// Errors are typed: *APIError for non-2xx responses, ErrTimeout when the
// per-attempt timeout elapses, ErrSessionExpired when a 401 could not be
// recovered, *DecodeError for malformed bodies and ValidationErrors for
// requests rejected before they were sent.
package shopsdk
