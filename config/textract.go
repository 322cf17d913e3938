package config

// TextractConfig enables OCR of PDFs that carry no text layer.
type TextractConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"accessKey"`
	SecretKey string `yaml:"secretKey"`
}

func applyTextractEnv(r *envReader, t *TextractConfig) {
	r.bool("OCR_ENABLED", &t.Enabled)
	r.str("AWS_REGION", &t.Region)
	r.str("AWS_ENDPOINT", &t.Endpoint)
	r.str("AWS_ACCESS_KEY", &t.AccessKey)
	r.str("AWS_SECRET_KEY", &t.SecretKey)
}
