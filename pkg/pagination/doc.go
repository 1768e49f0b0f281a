// Package pagination loads paged envelope endpoints incrementally.
//
// A Loader owns the page cursor of one endpoint and appends each page into a
// RenderTarget. Loads are single-flight: a visibility Trigger firing while a
// page is outstanding is ignored. A failed page moves the loader into an
// error state that only Retry leaves, so a broken endpoint is never hammered
// by the trigger.
//
// Example usage:
//
//	exec, _ := client.New(client.DefaultConfig("pagefeed/1.0"))
//	loader, _ := pagination.New(exec, table, pagination.Config{
//		Endpoint: "https://books.example.com/api/invoices",
//		PageSize: pagination.DefaultPageSize,
//	})
//	trigger := pagination.NewSignalTrigger()
//	loader.Attach(ctx, trigger)
//	trigger.Signal() // sentinel scrolled into view
//
// End of data is detected from has_more, or from a batch shorter than the
// page size when has_more is absent. An exactly full last page therefore
// costs one extra, empty request.
//
// BatchFetcher reads a whole endpoint without a render target, in parallel
// when the first page reports the page count.
package pagination
