// The [cbtools] package implements a document-object mapping layer for
// Couchbase buckets fronted by a Sync Gateway, in the Go way.
//
// # Overview
//
// Documents are plain Go structs embedding [Document] and describing their
// fields with a schema table of [Field] descriptors. The [DB] handle persists them through the
// Sync Gateway REST API, which enforces channel-based access control and
// optimistic concurrency on every write. Secondary lookups go through
// Couchbase views via [ViewClient], which returns document ids only;
// [LoadMany] and [LoadRelated] then materialize the objects with a single
// bulk fetch.
//
// # Channels
//
// Every document must carry at least one channel before it can be saved.
// A principal sees a document only if its channel set intersects the
// document's channel set. The well-known "public" channel is granted to
// every principal created through [Gateway.PutUser].
//
// # Deletion
//
// [DB.SoftDelete] never removes a document; it flips the st_deleted flag
// and re-saves. Physical removal is reserved for housekeeping jobs using
// [Gateway.DeleteDocument] directly.
package cbtools
