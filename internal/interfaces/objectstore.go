package interfaces

import "context"

// ObjectStore is the typed gateway over bucket/key storage used by every
// other component. One attempt is definitive: callers decide retry policy.
type ObjectStore interface {
	// GetBytes returns the full contents of an object, or ErrNoSuchKey.
	GetBytes(ctx context.Context, bucket, key string) ([]byte, error)

	// GetString returns the object contents decoded as UTF-8 text.
	GetString(ctx context.Context, bucket, key string) (string, error)

	// PutBytes writes an object, replacing any previous content.
	PutBytes(ctx context.Context, bucket, key string, body []byte) error

	// Exists reports whether an object exists. Both 404 and 403 responses
	// map to false (the legacy bucket ACL convention).
	Exists(ctx context.Context, bucket, key string) (bool, error)

	// Copy duplicates an object. An empty destBucket copies within
	// the source bucket.
	Copy(ctx context.Context, srcBucket, srcKey, destKey, destBucket string) error

	// DownloadFile fetches an object into a local file path.
	DownloadFile(ctx context.Context, bucket, key, path string) error

	// UploadFile stores a local file under the given key.
	UploadFile(ctx context.Context, path, bucket, key string) error
}

// URLSigner issues presigned PUT URLs for direct client uploads.
type URLSigner interface {
	// PresignPut returns a URL allowing a single PUT of the object,
	// valid for the given number of seconds.
	PresignPut(bucket, key string, expirySeconds int64) (string, error)
}
