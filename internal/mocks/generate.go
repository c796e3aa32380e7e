// Package mocks provides mock implementations for testing the portal core.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for the port interfaces.
// The mocks are generated using go:generate directives and provide a fluent API for setting up test expectations.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	records := mocks.NewMockRecordStore(ctrl)
//	records.EXPECT().Insert(gomock.Any(), ports.CollectionComplaints, gomock.Any(), gomock.Any()).Return(nil)
package mocks

// Generate mock for RecordStore interface from internal/ports package.
// This creates MockRecordStore with methods for all RecordStore interface methods:
// Insert, Query
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=record_store_mock.go github.com/swachh/portal-core/internal/ports RecordStore

// Generate mock for TokenStore interface from internal/ports package.
// This creates MockTokenStore with methods for all TokenStore interface methods:
// Save, Load, Delete
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=token_store_mock.go github.com/swachh/portal-core/internal/ports TokenStore
