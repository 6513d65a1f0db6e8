// Package alttext is the HTTP client for the remote alt-text generation
// service. It implements the generation.Generator and quota.UsageFetcher
// boundaries, handling credential headers, bounded retries, throttled token
// validation, and the mapping of service failures onto the generation
// error taxonomy.
package alttext
