// Command zip-lambda is the function that bundles a bucket into one archive.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/newthinker/s3zip/internal/app"
	"github.com/newthinker/s3zip/internal/handler"
)

func main() {
	a, err := app.New(context.Background(), app.Options{ConfigPath: os.Getenv("S3ZIP_CONFIG_FILE")})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer a.Close()

	lambda.Start(handler.Pack(a.Deps()))
}
