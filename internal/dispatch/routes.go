package dispatch

import "net/http"

// Route maps one HTTP endpoint to a named command with its declared
// parameters. Required parameters missing from every source are a client
// error naming the field; optional ones resolve to nil. Commands reachable
// under both dialects' paths appear once per path, same command name.
type Route struct {
	Command  string
	Method   string
	Pattern  string // chi pattern, includes the {sessionId} segment
	Required []string
	Optional []string
}

// Routes is the command route table. Session lifecycle endpoints (/status,
// /session, /sessions, session describe/delete/events) are wired separately
// by the server; everything here dispatches through the command path.
var Routes = []Route{
	{Command: "setTimeouts", Method: http.MethodPost, Pattern: "/session/{sessionId}/timeouts",
		Optional: []string{"script", "pageLoad", "implicit", "ms", "type"}},
	{Command: "getTimeouts", Method: http.MethodGet, Pattern: "/session/{sessionId}/timeouts"},

	{Command: "setUrl", Method: http.MethodPost, Pattern: "/session/{sessionId}/url", Required: []string{"url"}},
	{Command: "getUrl", Method: http.MethodGet, Pattern: "/session/{sessionId}/url"},
	{Command: "getTitle", Method: http.MethodGet, Pattern: "/session/{sessionId}/title"},
	{Command: "back", Method: http.MethodPost, Pattern: "/session/{sessionId}/back"},
	{Command: "forward", Method: http.MethodPost, Pattern: "/session/{sessionId}/forward"},
	{Command: "refresh", Method: http.MethodPost, Pattern: "/session/{sessionId}/refresh"},
	{Command: "getPageSource", Method: http.MethodGet, Pattern: "/session/{sessionId}/source"},

	{Command: "findElement", Method: http.MethodPost, Pattern: "/session/{sessionId}/element",
		Required: []string{"using", "value"}},
	{Command: "findElements", Method: http.MethodPost, Pattern: "/session/{sessionId}/elements",
		Required: []string{"using", "value"}},
	{Command: "findElementFromElement", Method: http.MethodPost, Pattern: "/session/{sessionId}/element/{elementId}/element",
		Required: []string{"using", "value"}},
	{Command: "findElementsFromElement", Method: http.MethodPost, Pattern: "/session/{sessionId}/element/{elementId}/elements",
		Required: []string{"using", "value"}},

	{Command: "click", Method: http.MethodPost, Pattern: "/session/{sessionId}/element/{elementId}/click"},
	{Command: "clear", Method: http.MethodPost, Pattern: "/session/{sessionId}/element/{elementId}/clear"},
	{Command: "setValue", Method: http.MethodPost, Pattern: "/session/{sessionId}/element/{elementId}/value",
		Optional: []string{"text", "value"}},
	{Command: "getText", Method: http.MethodGet, Pattern: "/session/{sessionId}/element/{elementId}/text"},
	{Command: "getName", Method: http.MethodGet, Pattern: "/session/{sessionId}/element/{elementId}/name"},
	{Command: "getAttribute", Method: http.MethodGet, Pattern: "/session/{sessionId}/element/{elementId}/attribute/{name}"},
	{Command: "getProperty", Method: http.MethodGet, Pattern: "/session/{sessionId}/element/{elementId}/property/{name}"},
	{Command: "getCssProperty", Method: http.MethodGet, Pattern: "/session/{sessionId}/element/{elementId}/css/{propertyName}"},
	{Command: "elementDisplayed", Method: http.MethodGet, Pattern: "/session/{sessionId}/element/{elementId}/displayed"},
	{Command: "elementEnabled", Method: http.MethodGet, Pattern: "/session/{sessionId}/element/{elementId}/enabled"},
	{Command: "elementSelected", Method: http.MethodGet, Pattern: "/session/{sessionId}/element/{elementId}/selected"},
	{Command: "getLocation", Method: http.MethodGet, Pattern: "/session/{sessionId}/element/{elementId}/location"},
	{Command: "getSize", Method: http.MethodGet, Pattern: "/session/{sessionId}/element/{elementId}/size"},
	{Command: "getElementRect", Method: http.MethodGet, Pattern: "/session/{sessionId}/element/{elementId}/rect"},

	// Script execution, W3C and legacy paths.
	{Command: "execute", Method: http.MethodPost, Pattern: "/session/{sessionId}/execute/sync",
		Required: []string{"script", "args"}},
	{Command: "execute", Method: http.MethodPost, Pattern: "/session/{sessionId}/execute",
		Required: []string{"script", "args"}},
	{Command: "executeAsync", Method: http.MethodPost, Pattern: "/session/{sessionId}/execute/async",
		Required: []string{"script", "args"}},
	{Command: "executeAsync", Method: http.MethodPost, Pattern: "/session/{sessionId}/execute_async",
		Required: []string{"script", "args"}},

	// Screenshots, W3C and legacy element paths.
	{Command: "getScreenshot", Method: http.MethodGet, Pattern: "/session/{sessionId}/screenshot"},
	{Command: "getElementScreenshot", Method: http.MethodGet, Pattern: "/session/{sessionId}/element/{elementId}/screenshot"},
	{Command: "getElementScreenshot", Method: http.MethodGet, Pattern: "/session/{sessionId}/screenshot/{elementId}"},

	// Window handling, W3C and legacy paths.
	{Command: "getWindowHandle", Method: http.MethodGet, Pattern: "/session/{sessionId}/window"},
	{Command: "getWindowHandle", Method: http.MethodGet, Pattern: "/session/{sessionId}/window_handle"},
	{Command: "getWindowHandles", Method: http.MethodGet, Pattern: "/session/{sessionId}/window/handles"},
	{Command: "getWindowHandles", Method: http.MethodGet, Pattern: "/session/{sessionId}/window_handles"},
	{Command: "setWindow", Method: http.MethodPost, Pattern: "/session/{sessionId}/window",
		Optional: []string{"name", "handle"}},
	{Command: "closeWindow", Method: http.MethodDelete, Pattern: "/session/{sessionId}/window"},

	{Command: "setFrame", Method: http.MethodPost, Pattern: "/session/{sessionId}/frame", Required: []string{"id"}},
	{Command: "frameParent", Method: http.MethodPost, Pattern: "/session/{sessionId}/frame/parent"},

	{Command: "performActions", Method: http.MethodPost, Pattern: "/session/{sessionId}/actions",
		Required: []string{"actions"}},
	{Command: "releaseActions", Method: http.MethodDelete, Pattern: "/session/{sessionId}/actions"},

	// Context switching.
	{Command: "getCurrentContext", Method: http.MethodGet, Pattern: "/session/{sessionId}/context"},
	{Command: "setContext", Method: http.MethodPost, Pattern: "/session/{sessionId}/context",
		Required: []string{"name"}},
	{Command: "getContexts", Method: http.MethodGet, Pattern: "/session/{sessionId}/contexts"},
}

// FindRoute resolves a command name to its first route entry. Commands with
// both a W3C and a legacy path resolve to the W3C one.
func FindRoute(command string) (Route, bool) {
	for _, rt := range Routes {
		if rt.Command == command {
			return rt, true
		}
	}
	return Route{}, false
}
