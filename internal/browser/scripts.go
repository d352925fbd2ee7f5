// File: internal/browser/scripts.go
package browser

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// resolveNodesJS is shared by every script below. It returns all matches for a
// CSS selector or an XPath expression, in document order.
const resolveNodesJS = `function __parleyResolve(sel, isXPath) {
	if (isXPath) {
		var out = [];
		var snap = document.evaluate(sel, document, null, XPathResult.ORDERED_NODE_SNAPSHOT_TYPE, null);
		for (var i = 0; i < snap.snapshotLength; i++) { out.push(snap.snapshotItem(i)); }
		return out;
	}
	return Array.prototype.slice.call(document.querySelectorAll(sel));
}`

const probeJS = `(function(sel, isXPath) {
	%s
	var nodes = __parleyResolve(sel, isXPath);
	var state = {count: nodes.length, visible: false, enabled: false, lastText: "", lastHTML: ""};
	if (nodes.length === 0) { return state; }
	var first = nodes[0];
	var style = window.getComputedStyle(first);
	var rect = first.getBoundingClientRect();
	state.visible = style.display !== "none" && style.visibility !== "hidden" &&
		style.opacity !== "0" && (rect.width > 0 || rect.height > 0);
	state.enabled = !first.disabled && first.getAttribute("aria-disabled") !== "true";
	var last = nodes[nodes.length - 1];
	state.lastText = last.innerText || last.textContent || "";
	state.lastHTML = last.outerHTML || "";
	return state;
})(%s, %t)`

// clearJS handles plain inputs and contenteditable editors alike and fires the
// events reactive frameworks listen for.
const clearJS = `(function(sel, isXPath) {
	%s
	var el = __parleyResolve(sel, isXPath)[0];
	if (!el || el.disabled || el.readOnly) { return false; }
	try {
		if (el.tagName === "INPUT" || el.tagName === "TEXTAREA") {
			el.value = "";
		} else if (el.isContentEditable) {
			el.innerHTML = "";
		} else {
			el.textContent = "";
		}
		el.dispatchEvent(new Event("input", { bubbles: true }));
		el.dispatchEvent(new Event("change", { bubbles: true }));
	} catch (e) {
		return false;
	}
	return true;
})(%s, %t)`

// setTextJS writes the whole value at once. Inputs go through the native value
// setter so React notices; editors get an insertText command.
const setTextJS = `(function(sel, isXPath, text) {
	%s
	var el = __parleyResolve(sel, isXPath)[0];
	if (!el || el.disabled || el.readOnly) { return false; }
	try {
		el.focus();
		if (el.tagName === "INPUT" || el.tagName === "TEXTAREA") {
			var proto = el.tagName === "INPUT" ? HTMLInputElement.prototype : HTMLTextAreaElement.prototype;
			Object.getOwnPropertyDescriptor(proto, "value").set.call(el, text);
		} else if (el.isContentEditable) {
			document.execCommand("selectAll", false, null);
			if (!document.execCommand("insertText", false, text)) { el.textContent = text; }
		} else {
			el.textContent = text;
		}
		el.dispatchEvent(new Event("input", { bubbles: true }));
		el.dispatchEvent(new Event("change", { bubbles: true }));
	} catch (e) {
		return false;
	}
	return true;
})(%s, %t, %s)`

func probeScript(selector string) string {
	return fmt.Sprintf(probeJS, resolveNodesJS, jsonEncode(selector), IsXPath(selector))
}

func clearScript(selector string) string {
	return fmt.Sprintf(clearJS, resolveNodesJS, jsonEncode(selector), IsXPath(selector))
}

func setTextScript(selector, text string) string {
	return fmt.Sprintf(setTextJS, resolveNodesJS, jsonEncode(selector), IsXPath(selector), jsonEncode(text))
}

// jsonEncode safely quotes a value for injection into a script.
func jsonEncode(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return `""`
	}
	return string(b)
}
