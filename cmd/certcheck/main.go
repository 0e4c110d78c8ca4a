package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"cert-checker/internal/client"
	"cert-checker/internal/service"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout))
}

func run(args []string, stdout io.Writer) int {
	fs := pflag.NewFlagSet("certcheck", pflag.ContinueOnError)
	url := fs.String("url", envOr("CERTCHECK_URL", client.DefaultURL), "check endpoint of the API")
	token := fs.String("token", os.Getenv("CERTCHECK_TOKEN"), "bearer token")
	sign := fs.Bool("sign", false, "send a 5 minute JWT signed with --token instead of the token")
	timeout := fs.Duration("timeout", client.DefaultTimeout, "request timeout")
	cfToken := fs.String("cloudflare-token", os.Getenv("CLOUDFLARE_API_TOKEN"), "also check every A/AAAA/CNAME record in Cloudflare")
	verbose := fs.BoolP("verbose", "v", false, "debug logging")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: certcheck [flags] <server_name_or_filename>\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 && *cfToken == "" {
		fs.Usage()
		return 1
	}

	logrus.SetLevel(logrus.WarnLevel)
	if *verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}

	var servers []string
	if fs.NArg() == 1 {
		var err error
		if servers, err = client.ReadDomains(fs.Arg(0)); err != nil {
			fmt.Fprintf(stdout, "An error occurred: %v\n", err)
			return 1
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout+time.Minute)
	defer cancel()

	if *cfToken != "" {
		names, err := service.NewCloudflareService(*cfToken).FetchDomainNames(ctx)
		if err != nil {
			fmt.Fprintf(stdout, "Cloudflare error: %v\n", err)
			return 1
		}
		servers = client.MergeDomains(servers, names)
	}

	c := client.New(*url, *token, *timeout)
	c.Sign = *sign

	fmt.Fprintf(stdout, "Checking %d domains against API (%s)...\n", len(servers), c.URL)

	results, err := c.Check(ctx, servers)
	var apiErr *client.APIError
	switch {
	case errors.As(err, &apiErr):
		fmt.Fprintln(stdout, apiErr.Error())
		return 1
	case errors.Is(err, client.ErrUnreachable):
		fmt.Fprintln(stdout, "Could not connect to API. Is it running?")
		logrus.Debug(err)
		return 1
	case err != nil:
		fmt.Fprintf(stdout, "An error occurred: %v\n", err)
		return 1
	}

	client.RenderTable(stdout, results)
	return 0
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
