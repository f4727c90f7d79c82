// Package credits provides an offline-tolerant metered credit client for Go
// applications.
//
// Credits charges billed actions against a remote billing service and keeps
// the application usable when that service is unreachable. It provides:
//
//   - Anonymous device identity, registered once and reused
//   - A cached balance of free and paid credits
//   - Local debits while offline, queued for replay
//   - Exactly-once replay of queued debits through idempotency keys
//   - Checkout sessions and polling for out-of-band payments
//   - Pluggable stores: in-memory, a shared JSON document, or SQLite via Grove
//
// # Quick Start
//
// Create a ledger with a store and start it:
//
//	import (
//	    "github.com/xraph/credits"
//	    "github.com/xraph/credits/store/file"
//	)
//
//	path, err := file.DefaultPath()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	l := credits.New(file.New(path),
//	    credits.WithConfig(credits.ConfigFromEnv(credits.DefaultConfig())),
//	)
//	if err := l.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer l.Stop()
//
// # Charging
//
// Consume charges an action. Errors tell the caller what to offer next:
//
//	balance, err := l.Consume(ctx, "generate_report", 1)
//	switch {
//	case credits.IsPaymentRequired(err):
//	    url, _ := l.Checkout(ctx) // send the user to pay
//	case credits.IsConfigError(err):
//	    // show the setup screen
//	case credits.IsExternalService(err):
//	    // offer a retry
//	}
//
// The paywall package wraps this decision for callers that only need a
// yes, a no, or a checkout URL.
//
// # Offline Operation
//
// With Config.Offline set, a charge that cannot reach the service is
// approved from the cached balance, free credits first, and queued. The
// cached total plus the queued total is conserved by every charge. The
// queue is replayed before each charge, by SyncPending, or on a timer
// with WithAutoSync. An item leaves the queue only when the service
// acknowledges it.
//
// # TypeID
//
// Device ids and queued debit ids use TypeID:
//
//	dev_01h2xcejqtf2nbrexx3vqjhp41   // device
//	pcon_01h455vb4pex5vsknk084sn02q  // pending consumption
package credits
