package config

import (
	"flag"
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env        string     `yaml:"env" env:"ENV" env-default:"production"`
	PGSQL      PGSQL      `yaml:"pgsql"`
	Redis      Redis      `yaml:"redis"`
	MinIO      MinIO      `yaml:"minio"`
	Media      Media      `yaml:"media"`
	HTTPServer HTTPServer `yaml:"http_server"`
	JWTSecret  string     `yaml:"jwt_secret" env:"JWT_SECRET" env-default:"super_secret_key"`
}

type HTTPServer struct {
	Address string `yaml:"address" env:"HTTP_ADDRESS" env-default:"localhost:8080"`
}

type PGSQL struct {
	Host     string `yaml:"host" env:"PG_HOST" env-default:"localhost"`
	Port     string `yaml:"port" env:"PG_PORT" env-default:"5432"`
	User     string `yaml:"user" env:"PG_USER" env-default:"postgres"`
	Password string `yaml:"password" env:"PG_PASSWORD" env-default:"password"`
	DBName   string `yaml:"dbname" env:"PG_DBNAME" env-default:"media_db"`
	SSLMode  string `yaml:"sslmode" env:"PG_SSLMODE" env-default:"disable"`
}

type Redis struct {
	Address  string `yaml:"address" env:"REDIS_ADDRESS" env-default:"localhost:6379"`
	Password string `yaml:"password" env:"REDIS_PASSWORD" env-default:""`
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

type MinIO struct {
	Endpoint        string `yaml:"endpoint" env:"MINIO_ENDPOINT" env-default:"localhost:9000"`
	AccessKeyID     string `yaml:"access_key_id" env:"MINIO_ACCESS_KEY"`
	SecretAccessKey string `yaml:"secret_access_key" env:"MINIO_SECRET_KEY"`
	BucketName      string `yaml:"bucket_name" env:"MINIO_BUCKET" env-default:"review-media"`
	Region          string `yaml:"region" env:"MINIO_REGION" env-default:"us-east-1"`
	UseSSL          bool   `yaml:"use_ssl" env:"MINIO_USE_SSL" env-default:"false"`
}

// Media holds every tunable limit of the ingestion pipeline. The pipeline
// components receive this struct at construction time so tests can substitute
// tighter limits.
type Media struct {
	// Absolute pre-flight ceiling for any upload.
	MaxFileSize int64 `yaml:"max_file_size" env:"MEDIA_MAX_FILE_SIZE" env-default:"104857600"`

	// MIME types accepted by the pre-flight validator.
	AllowedMimeTypes []string `yaml:"allowed_mime_types" env:"MEDIA_ALLOWED_MIME_TYPES" env-default:"image/jpeg,image/png,image/gif,image/webp,video/mp4,video/mpeg,video/quicktime,video/webm,application/pdf,text/plain,application/msword,application/vnd.openxmlformats-officedocument.wordprocessingml.document"`

	// Image constraints, checked against decoded content rather than
	// declared metadata.
	MaxImagePixels int   `yaml:"max_image_pixels" env:"MEDIA_MAX_IMAGE_PIXELS" env-default:"8192"`
	MaxImageBytes  int64 `yaml:"max_image_bytes" env:"MEDIA_MAX_IMAGE_BYTES" env-default:"52428800"`
	ImageQuality   int   `yaml:"image_quality" env:"MEDIA_IMAGE_QUALITY" env-default:"80"`

	// Longest edge of the compressed rendition; larger sources are
	// downscaled to fit.
	MaxVariantPixels int `yaml:"max_variant_pixels" env:"MEDIA_MAX_VARIANT_PIXELS" env-default:"2048"`

	// Video constraints.
	MaxVideoBytes    int64         `yaml:"max_video_bytes" env:"MEDIA_MAX_VIDEO_BYTES" env-default:"104857600"`
	MaxVideoDuration time.Duration `yaml:"max_video_duration" env:"MEDIA_MAX_VIDEO_DURATION" env-default:"10m"`

	// Thumbnail geometry (square, center-cropped).
	ThumbnailSize int `yaml:"thumbnail_size" env:"MEDIA_THUMBNAIL_SIZE" env-default:"300"`

	// Storage transfer strategy: buffers above the threshold go through the
	// multipart path with this many concurrent part uploads.
	MultipartThreshold int64 `yaml:"multipart_threshold" env:"MEDIA_MULTIPART_THRESHOLD" env-default:"5242880"`
	MultipartWorkers   int   `yaml:"multipart_workers" env:"MEDIA_MULTIPART_WORKERS" env-default:"4"`

	// Bounded parallelism for per-upload variant transfers. Peak memory is
	// roughly MaxFileSize * VariantWorkers, so size this deliberately.
	VariantWorkers int `yaml:"variant_workers" env:"MEDIA_VARIANT_WORKERS" env-default:"3"`

	// Batch uploads.
	MaxBatchFiles int `yaml:"max_batch_files" env:"MEDIA_MAX_BATCH_FILES" env-default:"5"`

	// Presigned download URL lifetime in seconds.
	PresignedURLTTL int `yaml:"presigned_url_ttl" env:"MEDIA_PRESIGNED_URL_TTL" env-default:"3600"`
}

func MustLoad() *Config {
	var configPath string

	configPath = os.Getenv("CONFIG_PATH")

	if configPath == "" {
		flags := flag.String("config", "", "Path to config file")
		flag.Parse()
		configPath = *flags
	}

	var cfg Config

	if configPath == "" {
		// No file provided, run on env vars and defaults alone.
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			log.Fatalf("failed to read config from environment: %s", err)
		}
		return &cfg
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		log.Fatalf("config file does not exist at path: %s", configPath)
	}

	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		log.Fatalf("failed to read config: %s", err)
	}

	return &cfg
}
