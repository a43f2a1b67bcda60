// Package webhooks sends rendered deliveries to registered hooks.
//
// A Dispatcher claims due rows from the delivery ledger under a lease:
// pending -> in_flight -> succeeded | pending (retry) | failed_terminal.
// An instance that dies mid-send leaves its rows in_flight until the lease
// expires, after which any instance may claim them again.
package webhooks
