package config

import "time"

const (
	// Session
	ForceLeaveDelay = 2 * time.Second
	TokenTTL        = 24 * time.Hour

	// Websocket
	WriteWait       = 10 * time.Second
	PongWait        = 60 * time.Second
	PingPeriod      = (PongWait * 9) / 10
	MaxMessageSize  = 4096
	SendBufferSize  = 64
	ReadBufferSize  = 1024
	WriteBufferSize = 1024

	// HTTP
	QRSize          = 256
	ShutdownTimeout = 10 * time.Second
)
