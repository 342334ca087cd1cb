// Package pagination drives the cursor-based export of Intercom conversations.
//
// The Paginator walks the conversations listing one page at a time. Each
// page moves through an explicit state machine:
//
//	FETCHING -> NORMALIZING -> WRITING -> FETCHING | DONE
//
// FETCHING lists one page with the current cursor and lets the quota guard
// pause when the remaining rate limit is low. NORMALIZING fans the page's
// conversation refs out to the Normalizer, at most MaxConcurrency at a time,
// and collects results by position. WRITING serializes the batch to one new
// file. The loop ends (DONE) on the first response without pages.next.
//
// Pages are strictly sequential. Any failure aborts the run; files from
// earlier pages stay on disk and nothing is written for the failed page.
//
// Example usage:
//
//	p := pagination.New(pagination.Deps{
//		Lister:     client,
//		Normalizer: conversation.NewNormalizer(client, logger),
//		Guard:      ratelimit.NewGuard(ratelimit.DefaultConfig(), logger),
//		Sink:       sink,
//		Namer:      output.NewNamer(),
//	}, pagination.DefaultConfig(), logger)
//	result, err := p.Run(ctx)
package pagination
