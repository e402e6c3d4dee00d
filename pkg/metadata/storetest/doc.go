// Package storetest provides a conformance suite that every metadata.Store
// implementation must pass.
//
// Usage from a store package:
//
//	func TestConformance(t *testing.T) {
//		storetest.RunConformanceSuite(t, func(t *testing.T, opts metadata.Options) metadata.Store {
//			return memory.NewMemoryMetadataStore(opts)
//		})
//	}
package storetest
