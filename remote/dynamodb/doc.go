// Package dynamodb implements vecstore.DB on top of an Amazon DynamoDB table.
//
// # Table layout
//
// The table needs a string partition key "pk" and a string sort key "sk".
// Records of a namespace share one partition:
//
//	pk = <namespace>        sk = <id>    seq (N) vec (B) md (S)
//	pk = <namespace>#meta   sk = "meta"  dim (N) next_seq (N)
//
// "vec" holds the little-endian float32 components and "md" the codec-encoded
// metadata. The meta item fixes the dimension and hands out the sequence
// numbers that preserve insertion order.
//
// # Usage
//
//	db, err := dynamodb.New(ctx, "vectors",
//	    dynamodb.WithRegion("eu-central-1"),
//	    dynamodb.WithNamespace("docs"),
//	)
//	id, err := db.AddVector(ctx, []float32{0.1, 0.2}, map[string]any{"lang": "go"})
//
// Search reads the whole namespace and ranks it with the same exact cosine
// scorer as the local store. Snapshots and compression are not supported;
// they return vecstore.ErrNotImplemented.
package dynamodb
