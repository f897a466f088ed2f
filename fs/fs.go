// Package appfs embeds the files shipped with the binaries: SQL migrations and email templates.
package appfs

import "embed"

//go:embed migrations/*.sql
var Migrations embed.FS

//go:embed templates/email/*
var EmailTemplates embed.FS
