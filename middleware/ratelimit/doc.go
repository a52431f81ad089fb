// Package ratelimit fornece adapters HTTP (net/http) para rate limit e limite de concorrência.
//
// Visão geral (camadas):
//
//   - domain: políticas, decisão e contrato do Counter Store (sem net/http)
//   - application: Service.Check (janela fixa, fail-open/fail-closed) sem net/http
//   - infra: Counter Stores (Redis, memória, circuit breaker), stats, semáforo
//   - ratelimit (este pacote): middlewares HTTP + extração de identidade/rota + tradução para status/headers
//
// Fluxo por request:
//
//  1. Resolve a rota (path ou padrão chi) e acha a política no PolicySet
//  2. Extrai a identidade do cliente (JWT sub / header / XFF / IP)
//  3. Chama a camada application para obter a decisão
//  4. Se limitado, responde 429 com Retry-After; se o store caiu e a política
//     é fail-closed, responde 503 com o código rate_limiter_unavailable
//  5. Se permitido, chama o próximo handler (ex: reverse proxy)
//
// Janela fixa admite rajada de até 2x na virada da janela; isso é conhecido e aceito.
package ratelimit
