// Package repository define los contratos de dominio de keymint: el record
// store de namespaces (get / insert-if-absent / conditional update) y el
// registry de claves externas. Las implementaciones viven en
// internal/store/adapters y internal/registry.
package repository
