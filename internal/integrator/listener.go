package integrator

import (
	"encoding/json"
	"fmt"
)

// Side channel message types.
const (
	MsgReady    = "azgaar_ready"
	MsgTest     = "azgaar_test"
	MsgTestAck  = "azgaar_test_ack"
	MsgParams   = "azgaar_params"
	MsgGenerate = "azgaar_generate"
)

// listenerFlag is the global the listener sets inside the surface, so a
// second injection is a no-op.
const listenerFlag = "__wgpanelListener"

const listenerTemplate = `(function (allowed) {
  if (window[%[2]q]) {
    return "present";
  }

  function originAllowed(origin) {
    if (origin === window.location.origin) {
      return true;
    }
    for (var i = 0; i < allowed.length; i++) {
      if (allowed[i] === origin) {
        return true;
      }
      if (allowed[i] === "*" && origin === "null") {
        return true;
      }
    }
    return false;
  }

  window.addEventListener("message", function (event) {
    if (!originAllowed(event.origin)) {
      console.warn("wgpanel listener: rejected message from " + event.origin);
      return;
    }
    var data = event.data || {};
    try {
      switch (data.type) {
        case %[3]q:
          parent.postMessage({ type: %[4]q, testId: data.testId }, "*");
          break;
        case %[5]q:
          window.applyParameters(data.params, data.seed);
          break;
        case %[6]q:
          window.generate();
          break;
      }
    } catch (e) {
      console.error("wgpanel listener: " + data.type + " failed: " + e);
    }
  });
  window[%[2]q] = true;
  return "installed";
})(%[1]s);
`

// ListenerScript returns the script that installs the message listener in
// the surface. allowed lists the sender origins it accepts besides its own;
// "*" admits senders with an opaque ("null") origin.
func ListenerScript(allowed []string) string {
	if allowed == nil {
		allowed = []string{}
	}
	list, _ := json.Marshal(allowed)
	return fmt.Sprintf(listenerTemplate, list, listenerFlag, MsgTest, MsgTestAck, MsgParams, MsgGenerate)
}
