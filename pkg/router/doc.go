// Package router implements the offline cache router of the wallet card PWA.
//
// A Router is a lifecycle.Worker. Install precaches the application shell
// into the store named by the version tag, Activate deletes the stores of
// every other version and claims clients, and RoundTrip routes GET requests:
//
//   - the always-fresh asset (the customer's card artwork) goes network-first,
//     falling back to its last cached copy;
//   - everything else goes cache-first, writing network responses through to
//     the store and falling back to the cached root document when offline.
//
// Requests with any other method go straight to the network.
//
// # Basic Usage
//
//	r, err := router.New(router.DefaultConfig(origin), storage, http.DefaultTransport)
//	if err != nil {
//		return err
//	}
//	reg := lifecycle.NewRegistration(lifecycle.Options{Network: http.DefaultTransport})
//	if _, err := reg.Register(ctx, r); err != nil {
//		return err
//	}
//	client := &http.Client{Transport: reg}
//
// Write-through puts are not awaited by RoundTrip. Call Flush before closing
// the storage.
package router
