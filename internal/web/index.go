package web

// Single page dashboard: balances, staking form and positions per account.
const indexHTML = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="utf-8" />
  <title>dyosync</title>
  <link href="https://fonts.googleapis.com/css2?family=Space+Mono:wght@400;700&display=swap" rel="stylesheet">
  <style>
    :root { --bg:#fff; --ink:#111; --ink-mid:#4d4d4d; --panel:#f6f6f6; }
    * { box-sizing:border-box; }
    body { margin:0; padding:2rem; background:var(--bg); color:var(--ink); font-family:'Space Mono',monospace; }
    #app { max-width:960px; margin:0 auto; background:var(--panel); border:3px solid var(--ink); padding:2rem; box-shadow:12px 12px 0 rgba(0,0,0,.15); }
    header { display:flex; justify-content:space-between; align-items:center; }
    .status { font-size:.65rem; text-transform:uppercase; border:2px solid var(--ink); padding:.4rem .9rem; background:#fff; }
    .card { border:3px solid var(--ink); background:#fff; padding:1.2rem; margin-top:1.5rem; box-shadow:6px 6px 0 rgba(0,0,0,.12); }
    .grid { display:grid; grid-template-columns:repeat(4,1fr); gap:1rem; }
    .label { font-size:.6rem; text-transform:uppercase; letter-spacing:.2em; color:var(--ink-mid); }
    .value { font-size:1.1rem; font-weight:700; margin-top:.4rem; }
    .pill { font-size:.6rem; text-transform:uppercase; border:2px solid var(--ink); padding:.2rem .5rem; }
    .error { color:#b00020; }
    form { display:flex; gap:.5rem; margin-top:1rem; }
    input, select, button { font-family:inherit; border:2px solid var(--ink); padding:.4rem; background:#fff; }
    table { width:100%; border-collapse:collapse; margin-top:1rem; font-size:.75rem; }
    td, th { border-bottom:1px dashed var(--ink-mid); padding:.3rem; text-align:left; }
    #login { display:none; }
  </style>
</head>
<body>
<div id="app">
  <header><h1>dyosync</h1><span id="sse-status" class="status">connecting</span></header>
  <div id="login" class="card">
    <p class="error" id="login-reason">session expired, please log in again</p>
    <form id="login-form"><input id="token" placeholder="API token" type="password"><button>log in</button></form>
  </div>
  <div id="accounts"></div>
</div>
<script>
const accounts = new Map();
const container = document.getElementById('accounts');

function card(account) {
  if (accounts.has(account)) return accounts.get(account);
  const el = document.createElement('div');
  el.className = 'card';
  el.innerHTML =
    '<div class="label">' + account + '</div>' +
    '<div class="grid">' +
      ['available','secondary','staked','total'].map(k =>
        '<div><div class="label">' + k + '</div><div class="value" data-k="' + k + '">-</div></div>').join('') +
    '</div>' +
    '<div class="label" style="margin-top:1rem">apy <span data-k="apy">-</span></div>' +
    '<form data-action="stake"><input name="amount" placeholder="amount">' +
      '<select name="period_days"><option>30</option><option>90</option><option>180</option><option>365</option></select>' +
      '<button>stake</button></form>' +
    '<form data-action="claim"><button>claim rewards</button></form>' +
    '<div class="pill" data-k="message"></div>' +
    '<table><thead><tr><th>id</th><th>amount</th><th>ends</th><th>rewards</th><th>status</th><th></th></tr></thead><tbody></tbody></table>';
  el.querySelectorAll('form').forEach(f => f.addEventListener('submit', e => { e.preventDefault(); mutate(account, f); }));
  container.appendChild(el);
  accounts.set(account, el);
  return el;
}

function renderBalance(account, display) {
  const el = card(account);
  for (const k of ['available','secondary','staked','total']) {
    el.querySelector('[data-k="' + k + '"]').textContent = display[k] || '-';
  }
}

async function refresh(account) {
  const res = await fetch('/api/accounts/' + account + '/balance');
  if (!res.ok) return;
  const body = await res.json();
  if (body.has_snapshot) renderBalance(account, body.display);
  document.getElementById('login').style.display = body.login_required ? 'block' : 'none';
  const pos = await (await fetch('/api/accounts/' + account + '/positions')).json();
  const el = card(account);
  el.querySelector('[data-k="apy"]').textContent = pos.reward_rate.apy + '% (' + pos.reward_rate.source + ')';
  const tbody = el.querySelector('tbody');
  tbody.innerHTML = '';
  for (const p of pos.positions || []) {
    const tr = document.createElement('tr');
    tr.innerHTML = '<td>' + p.id + '</td><td>' + p.amount + '</td><td>' + p.end_time + '</td><td>' + p.rewards + '</td><td>' + p.status + '</td>' +
      '<td><button>unstake</button></td>';
    tr.querySelector('button').onclick = () => mutate(account, null, {position_id: p.id}, 'unstake');
    tbody.appendChild(tr);
  }
}

async function mutate(account, form, body, action) {
  action = action || form.dataset.action;
  if (form && action === 'stake') {
    body = {amount: form.amount.value, period_days: parseInt(form.period_days.value, 10)};
  }
  const res = await fetch('/api/accounts/' + account + '/' + action, {method:'POST', body: JSON.stringify(body || {})});
  const out = await res.json();
  const msg = card(account).querySelector('[data-k="message"]');
  msg.textContent = out.message;
  msg.className = 'pill' + (out.status === 'error' ? ' error' : '');
  setTimeout(() => { msg.textContent = ''; }, 3000);
  refresh(account);
}

document.getElementById('login-form').addEventListener('submit', async e => {
  e.preventDefault();
  await fetch('/api/session', {method:'POST', body: JSON.stringify({token: document.getElementById('token').value})});
  document.getElementById('login').style.display = 'none';
});

const status = document.getElementById('sse-status');
const source = new EventSource('/balance/live');
source.onopen = () => { status.textContent = 'live'; };
source.onerror = () => { status.textContent = 'reconnecting'; };
source.addEventListener('balance', e => {
  const ev = JSON.parse(e.data);
  renderBalance(ev.account, ev.display);
});

fetch('/api/accounts').then(r => r.json()).then(list => list.forEach(a => { card(a); refresh(a); }));
setInterval(() => accounts.forEach((_, a) => refresh(a)), 15000);
</script>
</body>
</html>`
