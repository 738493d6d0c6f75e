// Package minio stores collection snapshots through the MinIO client, which
// speaks to MinIO and other S3-compatible servers (Ceph, Garage, SeaweedFS)
// without pulling in the AWS SDK.
//
//	store, err := minioblob.New("localhost:9000", "vectors",
//	    minioblob.WithCredentials("minioadmin", "minioadmin"),
//	)
//	db, err := vecstore.New(vecstore.WithBlobStore(store))
package minio
