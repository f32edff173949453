package main

// General API documentation for swaggo. Regenerate internal/httpapi/docs with
// `swag init -g cmd/talion/docs.go -o internal/httpapi/docs`.
//
// @title           talion API
// @version         1.0
// @description     HTTP API for single-model text generation.
//
// @contact.name   talion maintainers
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
