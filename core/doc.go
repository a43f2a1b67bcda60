// Package core contains the webhook delivery domain: hook and change-event
// entities, the delivery ledger contract, the scope matcher, the payload
// renderer and the backoff scheduler. Storage, transport and dispatch adapters
// depend on this package; core must not depend on them.
//
// Delivery rows move through a claim lifecycle:
// pending -> in_flight -> succeeded|pending(retry)|failed_terminal.
// An in_flight row whose lease expired is claimable again, which is how work
// owned by a crashed instance is recovered.
package core
