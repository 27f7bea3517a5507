// Package minio stores index blobs in MinIO or any S3-compatible service
// (Ceph, Garage, SeaweedFS) through the MinIO client.
//
//	client, err := minio.New("localhost:9000", &minio.Options{
//	    Creds: credentials.NewStaticV4("minioadmin", "minioadmin", ""),
//	})
//	store := minioblob.NewStore(client, "indexes", "products/")
//	w, err := lexgo.Open(ctx, lexgo.WithBlobStore(store))
package minio
