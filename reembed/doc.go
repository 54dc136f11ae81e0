// Package reembed fills in missing guideline embeddings.
//
// A backfill takes a snapshot of the guidelines that have no embedding,
// embeds them in batches with retry and exponential backoff, normalizes the
// vectors and stamps them back on the store. A batch that still fails after
// its retries is skipped and its rule ids are reported; the rows stay
// unembedded and are picked up by the next backfill.
package reembed
