package analysis

// builtins is the Python builtin namespace: references to these names
// never count as free variables. Keyword literals (True, False, None) are
// distinct token types in the grammar and never reach name resolution,
// but they are listed anyway for callers that check names directly.
var builtins = map[string]struct{}{}

// IsBuiltin reports whether name belongs to the Python builtin namespace.
func IsBuiltin(name string) bool {
	_, ok := builtins[name]

	return ok
}

func init() {
	names := []string{
		// Constants.
		"True", "False", "None", "NotImplemented", "Ellipsis",
		"__debug__", "__name__", "__doc__", "__builtins__",
		// Functions.
		"abs", "aiter", "anext", "all", "any", "ascii", "bin", "bool",
		"breakpoint", "bytearray", "bytes", "callable", "chr",
		"classmethod", "compile", "complex", "delattr", "dict", "dir",
		"divmod", "enumerate", "eval", "exec", "filter", "float",
		"format", "frozenset", "getattr", "globals", "hasattr", "hash",
		"help", "hex", "id", "input", "int", "isinstance", "issubclass",
		"iter", "len", "list", "locals", "map", "max", "memoryview",
		"min", "next", "object", "oct", "open", "ord", "pow", "print",
		"property", "range", "repr", "reversed", "round", "set",
		"setattr", "slice", "sorted", "staticmethod", "str", "sum",
		"super", "tuple", "type", "vars", "zip", "__import__",
		// Exceptions and warnings.
		"BaseException", "BaseExceptionGroup", "Exception",
		"ArithmeticError", "AssertionError", "AttributeError",
		"BlockingIOError", "BrokenPipeError", "BufferError",
		"BytesWarning", "ChildProcessError", "ConnectionAbortedError",
		"ConnectionError", "ConnectionRefusedError", "ConnectionResetError",
		"DeprecationWarning", "EOFError", "EncodingWarning",
		"EnvironmentError", "ExceptionGroup", "FileExistsError",
		"FileNotFoundError", "FloatingPointError", "FutureWarning",
		"GeneratorExit", "IOError", "ImportError", "ImportWarning",
		"IndentationError", "IndexError", "InterruptedError",
		"IsADirectoryError", "KeyError", "KeyboardInterrupt",
		"LookupError", "MemoryError", "ModuleNotFoundError", "NameError",
		"NotADirectoryError", "NotImplementedError", "OSError",
		"OverflowError", "PendingDeprecationWarning", "PermissionError",
		"ProcessLookupError", "RecursionError", "ReferenceError",
		"ResourceWarning", "RuntimeError", "RuntimeWarning",
		"StopAsyncIteration", "StopIteration", "SyntaxError",
		"SyntaxWarning", "SystemError", "SystemExit", "TabError",
		"TimeoutError", "TypeError", "UnboundLocalError",
		"UnicodeDecodeError", "UnicodeEncodeError", "UnicodeError",
		"UnicodeTranslateError", "UnicodeWarning", "UserWarning",
		"ValueError", "Warning", "ZeroDivisionError",
	}

	for _, name := range names {
		builtins[name] = struct{}{}
	}
}
