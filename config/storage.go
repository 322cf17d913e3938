package config

// StorageConfig selects where content blobs live.
type StorageConfig struct {
	Backend string      `yaml:"backend"` // local | s3 | minio
	S3      S3Config    `yaml:"s3"`
	Minio   MinioConfig `yaml:"minio"`
}

type S3Config struct {
	BucketName string `yaml:"bucketName"`
	Region     string `yaml:"region"`
	Endpoint   string `yaml:"endpoint"`
	AccessKey  string `yaml:"accessKey"`
	SecretKey  string `yaml:"secretKey"`
}

type MinioConfig struct {
	AccessKey  string `yaml:"accessKey"`
	SecretKey  string `yaml:"secretKey"`
	Endpoint   string `yaml:"endpoint"`
	UseSSL     bool   `yaml:"useSSL"`
	Region     string `yaml:"region"`
	BucketName string `yaml:"bucketName"`
}

func applyStorageEnv(r *envReader, s *StorageConfig) {
	r.str("STORAGE_BACKEND", &s.Backend)

	r.str("AWS_S3_BUCKET_NAME", &s.S3.BucketName)
	r.str("AWS_REGION", &s.S3.Region)
	r.str("AWS_ENDPOINT", &s.S3.Endpoint)
	r.str("AWS_ACCESS_KEY", &s.S3.AccessKey)
	r.str("AWS_SECRET_KEY", &s.S3.SecretKey)

	r.str("MINIO_ACCESS_KEY", &s.Minio.AccessKey)
	r.str("MINIO_SECRET_KEY", &s.Minio.SecretKey)
	r.str("MINIO_ENDPOINT", &s.Minio.Endpoint)
	r.bool("MINIO_USE_SSL", &s.Minio.UseSSL)
	r.str("MINIO_REGION", &s.Minio.Region)
	r.str("MINIO_BUCKET_NAME", &s.Minio.BucketName)
}
