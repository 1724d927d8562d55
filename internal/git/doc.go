// Package git checks whether plaintext payload files hidden with stegvault
// are exposed to git: committed, or not covered by .gitignore.
package git
