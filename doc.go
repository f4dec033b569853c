/*
Package applog sets up structured logging for a program exactly once: JSON lines appended to a file, an optional
copy on standard output, a default severity and per-target filter directives such as "rocket=off" or
"github.com/acme/shop/db=debug". Records and spans emitted through a Logger always carry the service name,
the component name and a UTC RFC 3339 timestamp.

	applog.MustInitWithOptions("/var/log/shop.log", "shop", "api", applog.WithDebug, applog.WithoutConsole)
	applog.Info("order placed", "order_id", 42)

	ctx, span := applog.Span(ctx, "checkout", "cart_items", 3)
	defer span.End()

Only the first successful Init in a process takes effect; calls after it return nil without looking at their
arguments. A call that fails on a bad level, directive or file path installs nothing and does not count, so
the program may correct the configuration and call Init again. MustInit panics instead of returning the error.
The environment variable APPLOG_FILTER may hold base
directives that the configured level and filters are applied on top of.
*/
package applog
