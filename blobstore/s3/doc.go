// Package s3 stores collection snapshots in Amazon S3 (or any S3-compatible
// endpoint reachable through aws-sdk-go-v2).
//
// # Usage
//
//	store, err := s3.New(ctx, "my-bucket",
//	    s3.WithPrefix("vectors/"),
//	    s3.WithRegion("us-east-1"),
//	)
//	db, err := vecstore.New(vecstore.WithBlobStore(store))
//
// Writes stream through the S3 upload manager (multipart for large
// snapshots); an object only becomes visible once the upload completes.
package s3
