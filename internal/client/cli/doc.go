// Package cli provides the interactive lecom command-line client.
//
// The REPL is started via App.Root(ctx), which blocks until the user exits.
// Commands:
//
//	help                         show available commands
//	login | logout | status      manage the session
//	get <path>                   authenticated GET, prints the raw response
//	conversations [seller]       list conversations
//	start <productId>            open a chat with the product's seller
//	open <id>                    stream a conversation's new messages
//	send <text>                  post to the open conversation
//	close                        stop streaming
//	cart [add <id> <qty> | set <id> <qty> | rm <id>]
//	orders
//	profile [set <json> | password]
//	exit | quit
//
// Errors that mean the session is gone print "session expired, please
// login"; transport failures print "server unavailable".
package cli
