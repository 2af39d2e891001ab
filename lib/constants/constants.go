package constants

const (
	ALLOWED_ORIGINS       = "/changecontrol/ALLOWED_ORIGINS"
	DATABASE_RDS_ENDPOINT = "/changecontrol/DATABASE_RDS_ENDPOINT"
	DATABASE_PORT         = "/changecontrol/DATABASE_PORT"
	DATABASE_NAME         = "/changecontrol/DATABASE_NAME"
	DATABASE_USERNAME     = "/changecontrol/DATABASE_USERNAME"
	DATABASE_PASSWORD     = "/changecontrol/DATABASE_PASSWORD"
	SSL_MODE              = "/changecontrol/SSL_MODE"
	ATTACHMENT_BUCKET     = "/changecontrol/ATTACHMENT_BUCKET"
	DRIVER_NAME           = "postgres"
)
