// Package models defines the core domain records for the salonwise checkout engine.
//
// # Pricing
//
//   - LineItem: a service or product selected into a cart snapshot
//   - ChargeModifiers: service charges, discount, tax rate and tips applied to a cart
//   - PriceBreakdown: the derived totals for one cart + modifiers pair
//
// # Payment
//
//   - PaymentAllocation: how a grand total is split across cash and wallet
//   - WalletAccount: a customer's stored balance and its loyalty-point view
//   - WalletTransaction: an append-only ledger entry for one balance mutation
//   - PendingDebit: an outbox row for a wallet debit that still has to be applied
//
// # Bookings
//
//   - Booking: the immutable financial record of one checkout, plus its status and notes
//   - Identity: the session identity handed to the engine by the identity provider
//
// All money is carried as decimal.Decimal. Values are kept at full precision while
// computing and rounded half-up to two places when a breakdown is produced.
//
// Relationships use ID strings instead of pointers so records can be stored and
// snapshotted independently.
package models
