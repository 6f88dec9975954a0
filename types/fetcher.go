package types

import "context"

/*
Fetcher is the contract between the coordinator and the data source.

It is called when the cache has no fresh value for a key:
 1. Coordinator checks memory → key not found or expired
 2. Coordinator calls the Fetcher (usually an HTTP call to the menu API)
 3. Coordinator stores the result in memory
 4. Coordinator returns the value to every waiter

A Fetcher may fail. The returned value must be JSON-serializable so its
memory footprint can be estimated.
*/
type Fetcher[V any] func(ctx context.Context) (V, error)
