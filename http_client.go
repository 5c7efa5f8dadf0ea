package main

import (
	"net/http"
	"time"
)

const externalHTTPTimeout = 30 * time.Second

const userAgent = "pilotintel (maintainer: intel team)"

var externalHTTPClient = &http.Client{
	Timeout: externalHTTPTimeout,
}
