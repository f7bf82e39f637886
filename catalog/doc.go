// Package catalog is the relational store behind the storefront: purchasers,
// subjects, sellable items with their backing files, and the purchase ledger.
//
// [Store] satisfies goDeliver.AccountDirectory, goDeliver.FileRegistry and
// goDeliver.PurchaseLedger, so one value can be handed to the engine builder
// for all three collaborators. Any gorm dialect registered with [Register]
// can back it; sqlite and postgres are registered by default.
package catalog
