// Package threads projects raw Gmail threads and messages into the JSON
// model served by the HTTP API and aggregates search results across many
// followed addresses.
//
// The projection functions are pure. The Aggregator fans out Gmail calls
// through a Source with bounded concurrency and returns results in a
// deterministic order: address order first, then the order Gmail returned
// the threads in.
package threads
