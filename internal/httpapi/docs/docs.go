// Package docs holds the generated-style Swagger spec for the Control
// Plane's admin API, in the shape `swag init` would produce (see the
// teacher's cmd/apiserver's `_ "world-of-wisdom/docs"` import). Hand-authored
// here rather than generated, since the admin surface is small and stable
// and the teacher's own generated docs/ directory isn't checked in either.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
	"swagger": "2.0",
	"info": {
		"title": "HashPass Control Plane API",
		"description": "Operator endpoints for tuning the puzzle engine's economic parameters, banning/kicking connections, and rotating the HMAC secret. Every mutation of an economic parameter forces an immediate puzzle reset.",
		"version": "1.0"
	},
	"basePath": "/api/admin",
	"paths": {
		"/difficulty": {
			"post": {"summary": "Set the puzzle difficulty (clamped to the current [min,max] range)", "responses": {"200": {"description": "ok"}, "400": {"description": "malformed request body"}}}
		},
		"/difficulty-range": {
			"post": {"summary": "Set the allowed [min,max] difficulty range", "responses": {"200": {"description": "ok"}, "400": {"description": "inverted range"}}}
		},
		"/target-times": {
			"post": {"summary": "Set the difficulty controller's target solve time and timeout", "responses": {"200": {"description": "ok"}}}
		},
		"/argon2-params": {
			"post": {"summary": "Set Argon2 time cost, memory cost, and parallelism", "responses": {"200": {"description": "ok"}}}
		},
		"/worker-count": {
			"post": {"summary": "Set the worker count reported by GET /puzzle (the verification pool keeps its startup size)", "responses": {"200": {"description": "ok"}}}
		},
		"/max-nonce-speed": {
			"post": {"summary": "Set the maximum accepted nonce/second speed before a submission is rejected as implausible", "responses": {"200": {"description": "ok"}}}
		},
		"/hmac-secret/rotate": {
			"post": {"summary": "Rotate the HMAC secret, invalidating every previously issued invite code", "responses": {"200": {"description": "ok"}}}
		},
		"/hmac-secret": {
			"post": {"summary": "Set the HMAC secret to an operator-supplied value", "responses": {"200": {"description": "ok"}, "400": {"description": "secret too short"}}}
		},
		"/ban": {
			"post": {"summary": "Ban an IP from connecting", "responses": {"200": {"description": "ok"}}}
		},
		"/unban": {
			"post": {"summary": "Lift an IP ban", "responses": {"200": {"description": "ok"}}}
		},
		"/kick": {
			"post": {"summary": "Disconnect the active connection from an IP", "responses": {"200": {"description": "ok"}}}
		},
		"/kick-all": {
			"post": {"summary": "Disconnect every active connection", "responses": {"200": {"description": "ok"}}}
		},
		"/reset": {
			"post": {"summary": "Force-regenerate the current puzzle seed", "responses": {"200": {"description": "ok"}}}
		},
		"/clear-sessions": {
			"post": {"summary": "Revoke every issued session token", "responses": {"200": {"description": "ok"}}}
		}
	}
}`

// SwaggerInfo is read by swaggo/gin-swagger's WrapHandler through the swag
// registry, matching the shape `swag init` emits into docs/docs.go.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/admin",
	Schemes:          []string{},
	Title:            "HashPass Control Plane API",
	Description:      "Operator endpoints for the puzzle engine's economic parameters.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
