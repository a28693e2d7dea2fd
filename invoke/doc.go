// Package invoke supplies the built-in core.Invoker implementations: the
// FuncInvoker for code-backed agents and the ModelInvoker for agents backed
// by a language model.
package invoke
