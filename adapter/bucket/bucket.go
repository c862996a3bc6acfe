package bucket

// Bucket is a flat byte-blob store, used for the checkpoint file and for
// archiving raw statement responses.
type Bucket interface {
	GetObject(key string) ([]byte, error)
	PutObject(key string, data []byte) error
}
