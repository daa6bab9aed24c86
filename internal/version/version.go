package version

// Version is the version of the application. Set at build time.
var Version = "0.1.0-dev"
