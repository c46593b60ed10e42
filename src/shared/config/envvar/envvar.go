package envvar

import (
	"os"
)

const (
	RABBITMQ_URL        = "STEMSPLIT_RABBITMQ_URL"
	RABBITMQ_QUEUE_NAME = "STEMSPLIT_RABBITMQ_QUEUE_NAME"
	GOOGLE_CLOUD_KEY    = "STEMSPLIT_GOOGLE_CLOUD_KEY"
	UPLOAD_BUCKET_NAME  = "STEMSPLIT_UPLOAD_BUCKET_NAME"
	DEMUCS_BIN_PATH     = "STEMSPLIT_DEMUCS_BIN_PATH"
)

func GetOrDefault(key string, defaultVal string) string {
	val, isSet := os.LookupEnv(key)
	if !isSet || val == "" {
		return defaultVal
	}

	return val
}
