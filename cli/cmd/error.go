package cmd

import "github.com/ardnew/talc/lang"

var (
	ErrReadTemplate = lang.NewError("read template")
	ErrManifest     = lang.NewError("invalid manifest")
	ErrValues       = lang.NewError("invalid values")
	ErrWriteOutput  = lang.NewError("write output")
	ErrWriteConfig  = lang.NewError("write configuration file")
	ErrFileExists   = lang.NewError("file exists (use --force to overwrite)")
	ErrNoEnv        = lang.NewError("command environment not initialized")
)
